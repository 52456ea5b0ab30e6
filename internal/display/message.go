package display

// Operations sent to display clients.
const (
	OpSnapshot          = "snapshot"
	OpLanguages         = "languages"
	OpAppend            = "append"
	OpReplace           = "replace"
	OpTranslation       = "translation"
	OpTranslationFailed = "translation_failed"
	OpAggregate         = "aggregate"
	OpTruncate          = "truncate"
	OpReset             = "reset"
)

// Message is one JSON frame on the display WebSocket.
type Message struct {
	Op         string    `json:"op"`
	Index      *int      `json:"index,omitempty"`
	Text       string    `json:"text,omitempty"`
	SourceLang string    `json:"sourceLang,omitempty"`
	TargetLang string    `json:"targetLang,omitempty"`
	Count      *int      `json:"count,omitempty"`
	Error      string    `json:"error,omitempty"`
	Snapshot   *Snapshot `json:"snapshot,omitempty"`
}

// Snapshot is the full display state handed to a client when it connects.
type Snapshot struct {
	SourceLang string  `json:"sourceLang"`
	TargetLang string  `json:"targetLang"`
	Blocks     []Block `json:"blocks"`
	Aggregate  string  `json:"aggregate"`
}

type Block struct {
	Source      string `json:"source"`
	Translation string `json:"translation,omitempty"`
	Failed      bool   `json:"failed,omitempty"`
}

func intPtr(n int) *int {
	return &n
}
