package store

// State is the single record held by the remote store.
type State struct {
	Text       string `json:"text"`
	SourceLang string `json:"sourceLang"`
	TargetLang string `json:"targetLang"`
}

// DefaultState is served before anything has been written.
func DefaultState() State {
	return State{Text: "", SourceLang: "en", TargetLang: "pl"}
}
