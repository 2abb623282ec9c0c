package ai

// Backend names as used in configuration, health snapshots and metrics
const (
	BackendClaude = "claude"
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
	BackendEdge   = "edge"
)

// KnownBackends returns all backend names this package can build
func KnownBackends() []string {
	return []string{BackendClaude, BackendOpenAI, BackendGemini, BackendEdge}
}

// IsKnownBackend checks if name is a supported backend
func IsKnownBackend(name string) bool {
	for _, b := range KnownBackends() {
		if b == name {
			return true
		}
	}
	return false
}

const defaultMaxTokens = 1024
