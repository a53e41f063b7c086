package protocol

// Kind is the wire tag of an envelope.
type Kind string

const (
	KindInit     Kind = "init"
	KindStatus   Kind = "status"
	KindProgress Kind = "progress"
	KindReady    Kind = "ready"
	KindGenerate Kind = "generate"
	KindResult   Kind = "result"
	KindError    Kind = "error"
)

// Kinds lists every envelope kind in protocol order.
var Kinds = []Kind{KindInit, KindStatus, KindProgress, KindReady, KindGenerate, KindResult, KindError}

// Envelope is one message unit crossing the worker channel. The set of
// implementations is closed: only the types in this file satisfy it.
type Envelope interface {
	Kind() Kind
	envelope()
}

// Init asks the host to load the model. UI -> host.
type Init struct{}

// Status carries a human readable load step. Host -> UI.
type Status struct {
	Message string
}

// Progress carries download progress. Host -> UI.
type Progress struct {
	Message string
	Percent int
}

// Ready reports that the model is usable. Host -> UI.
type Ready struct {
	Message string
}

// Generate asks the host to answer Query using SystemPrompt as the
// extractive context. UI -> host.
type Generate struct {
	SystemPrompt string  `json:"systemPrompt"`
	Query        string  `json:"query"`
	MaxTokens    int     `json:"maxTokens"`
	Temperature  float64 `json:"temperature"`
	RequestID    string  `json:"-"`
}

// Result carries the answer text of a generate request. Host -> UI.
type Result struct {
	Data      string
	RequestID string
}

// Error reports a failed init or generate. RequestID is empty for init
// failures. Host -> UI.
type Error struct {
	Message   string
	RequestID string
}

func (Init) Kind() Kind     { return KindInit }
func (Status) Kind() Kind   { return KindStatus }
func (Progress) Kind() Kind { return KindProgress }
func (Ready) Kind() Kind    { return KindReady }
func (Generate) Kind() Kind { return KindGenerate }
func (Result) Kind() Kind   { return KindResult }
func (Error) Kind() Kind    { return KindError }

func (Init) envelope()     {}
func (Status) envelope()   {}
func (Progress) envelope() {}
func (Ready) envelope()    {}
func (Generate) envelope() {}
func (Result) envelope()   {}
func (Error) envelope()    {}
