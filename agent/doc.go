// Package agent provides the conversational agent that drives each call.
//
// The package defines a common Service interface that abstracts chat
// providers, so the bridge can turn a caller transcript into a spoken reply
// without caring which model generates it.
//
// # Architecture
//
// The package provides:
//   - Service interface for reply generation and post-call summaries
//   - SessionContext carrying the persona prompt and conversation history
//   - Multiple provider implementations (OpenAI chat completions, Claude on
//     AWS Bedrock)
//
// # Usage
//
// Basic usage with OpenAI:
//
//	service := agent.NewOpenAI(os.Getenv("OPENAI_API_KEY"))
//	reply, err := service.Reply(ctx, "I took my pills this morning", agent.SessionContext{
//	    SystemPrompt: persona,
//	    History:      history,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Agent says:", reply)
//
// The bridge appends each exchange to History so the next turn sees the full
// conversation. Replies are short by default because they are spoken aloud.
//
// # Available Providers
//
// The package includes implementations for:
//   - OpenAI chat completions (gpt-4o-mini default)
//   - Claude on AWS Bedrock (SigV4-signed, event-stream replies)
package agent
