// Package prompt assembles the chat messages sent to the completion model:
// a grounded system instruction carrying the retrieved context, a bounded
// window of conversation history and the latest user message.
package prompt
