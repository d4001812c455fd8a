// Package chatkit is a client for hosted chat-completion APIs.
//
// A Client sends buffered (Send) or streaming (Stream) requests to one
// provider, OpenAI-compatible or Anthropic, taking a permit from an
// optional rate limiter for each request. Streams are decoded into
// provider-neutral deltas and folded into complete messages by an
// Assembler; a message exists only once the provider's terminal marker
// arrived.
//
// The Orchestrator (or Client.RunTools) drives multi-turn tool calling:
//
//	registry, _ := chatkit.NewToolRegistry(
//		chatkit.DefineFunction("get_weather", "Current weather for a city",
//			chatkit.WithFunction(func(ctx context.Context, p *WeatherParams) (*Weather, error) {
//				return lookup(ctx, p.City)
//			})),
//	)
//	client := chatkit.NewOpenAI("gpt-4o", os.Getenv("OPENAI_API_KEY"))
//	result, err := client.RunTools(ctx, []chatkit.Message{
//		chatkit.UserMessage("What's the weather in Paris?"),
//	}, registry)
//
// Token counting and context-window checks are provided by Accountant.
package chatkit
