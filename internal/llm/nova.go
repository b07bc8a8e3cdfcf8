package llm

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
)

var novaModels = map[string]string{
	"nova-lite": "us.amazon.nova-2-lite-v1:0",
}

// Nova generates text with Amazon Nova through the Bedrock Converse API.
type Nova struct {
	name   string
	client *bedrockruntime.Client
}

// NewNova creates a Nova backend from the default AWS configuration.
func NewNova(ctx context.Context, name, region string) (*Nova, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)
	return &Nova{name: name, client: bedrockruntime.NewFromConfig(cfg)}, nil
}

func (n *Nova) Name() string { return n.name }

func (n *Nova) Generate(ctx context.Context, p Prompt) (string, error) {
	modelID := novaModels[n.name]
	if modelID == "" {
		modelID = novaModels["nova-lite"]
	}
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxToken
	}

	messages := make([]types.Message, 0, len(p.History)+1)
	for _, t := range p.History {
		role := types.ConversationRoleUser
		if t.Role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: t.Text}},
		})
	}
	messages = append(messages, types.Message{
		Role:    types.ConversationRoleUser,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: p.User}},
	})

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(maxTokens)),
			Temperature: aws.Float32(temperature),
		},
	}
	if p.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: p.System}}
	}

	return withRetry(ctx, "nova", func(ctx context.Context) (string, error) {
		resp, err := n.client.Converse(ctx, input)
		if err != nil {
			return "", err
		}
		return novaText(resp), nil
	})
}

func novaText(resp *bedrockruntime.ConverseOutput) string {
	if resp.Output == nil {
		return ""
	}
	msg, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			return tb.Value
		}
	}
	return ""
}
