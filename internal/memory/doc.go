// Package memory implements the retrieve/save pattern around each agent
// invocation.
//
// A Manager is bound to one actor and session. RetrieveContext runs before the
// agent and returns formatted "[TYPE] text" lines; SaveInteraction runs after
// a successful response. Both log failures instead of returning them, so a
// broken memory backend never fails a request.
//
// Backends:
//   - AgentCoreStore: managed AgentCore memory (strategies, records, events).
//   - TranscriptStore: DynamoDB table of completed turns for local runs.
package memory
