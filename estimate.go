package creditgate

// EstimateTokens provides a rough token count estimate for messages.
// Uses the approximation: ~4 chars per token + overhead per message.
func EstimateTokens(messages []Message) int64 {
	var total int64
	for _, m := range messages {
		total += EstimateTextTokens(m.Content)
		// overhead per message (role, formatting)
		total += 4
	}
	// base overhead for the request
	total += 3
	return total
}

// EstimateTextTokens estimates the token count of a single string.
func EstimateTextTokens(s string) int64 {
	return int64(len(s)+3) / 4
}
