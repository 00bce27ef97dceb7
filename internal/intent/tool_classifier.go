package intent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/invopop/jsonschema"
)

const recordIntentTool = "record_intent"

const classifierPrompt = "Classify the user's message. Call record_intent exactly once with one of: " +
	"greeting, farewell, question, general."

type RecordIntentInput struct {
	Intent string `json:"intent" jsonschema:"enum=greeting,enum=farewell,enum=question,enum=general" jsonschema_description:"Coarse label for the user's message."`
}

var RecordIntentInputSchema = GenerateSchema[RecordIntentInput]()

// GenerateSchema derives a tool input schema from a Go struct.
func GenerateSchema[T any]() anthropic.ToolInputSchemaParam {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return anthropic.ToolInputSchemaParam{
		Properties: schema.Properties,
	}
}

// ToolClassifier asks the model to label the message through a forced
// record_intent tool call.
type ToolClassifier struct {
	Client *anthropic.Client
	Model  anthropic.Model
}

func NewToolClassifier(client *anthropic.Client, model anthropic.Model) *ToolClassifier {
	return &ToolClassifier{Client: client, Model: model}
}

func (c *ToolClassifier) Classify(ctx context.Context, text string) (Intent, error) {
	msg, err := c.Client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.Model,
		MaxTokens: int64(64),
		System:    []anthropic.TextBlockParam{{Text: classifierPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
		Tools: []anthropic.ToolUnionParam{{OfTool: &anthropic.ToolParam{
			Name:        recordIntentTool,
			Description: anthropic.String("Record the intent label of the user's message."),
			InputSchema: RecordIntentInputSchema,
		}}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: recordIntentTool},
		},
	})
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	for _, block := range msg.Content {
		tu, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok || tu.Name != recordIntentTool {
			continue
		}
		var in RecordIntentInput
		if err := json.Unmarshal([]byte(tu.JSON.Input.Raw()), &in); err != nil {
			return "", fmt.Errorf("classify: decode %s input: %w", recordIntentTool, err)
		}
		return Parse(in.Intent)
	}
	return "", fmt.Errorf("classify: model did not call %s", recordIntentTool)
}
