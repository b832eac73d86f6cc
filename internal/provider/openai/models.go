package openai

// SupportedModels returns the curated list of models offered in the arena.
// Requests naming any other model are rejected before a stream opens.
func SupportedModels() []string {
	return []string{
		"deepseek/deepseek-v3-turbo",
		"deepseek/deepseek-r1-turbo",
		"qwen/qwen3-coder-480b-a35b-instruct",
		"qwen/qwen3-235b-a22b-instruct-2507",
		"zai-org/glm-4.5",
		"moonshotai/kimi-k2-instruct",
		"meta-llama/llama-4-maverick-17b-128e-instruct-fp8",
	}
}

// supportedModelSet is the O(1) lookup index over SupportedModels.
//
//nolint:gochecknoglobals // Immutable lookup table built once at init
var supportedModelSet = buildModelSet(SupportedModels())

func buildModelSet(models []string) map[string]bool {
	set := make(map[string]bool, len(models))
	for _, model := range models {
		set[model] = true
	}
	return set
}
