package ai

import (
	"github.com/cloudwego/eino/schema"

	"github.com/tjfontaine/lambda-api/internal/domain"
)

func toSchemaMessages(msgs []domain.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, &schema.Message{Role: schema.RoleType(m.Role), Content: m.Content})
	}
	return out
}

func fromSchemaMessages(msgs []*schema.Message) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		out = append(out, domain.Message{Role: domain.Role(m.Role), Content: m.Content})
	}
	return out
}
