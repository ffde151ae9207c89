package domain

const (
	ErrorIntentLabel      = "error_processing"
	FallbackResponse      = "I couldn't process that request."
	SentinelErrorResponse = "System error: Unable to analyze intent. Please check your API key or connection."
)

type Intent struct {
	Label string  `json:"label"`
	Score float64 `json:"score"` // 0 a 1
}

type Entity struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

type Analysis struct {
	DetectedIntents   []Intent `json:"detectedIntents"`
	ExtractedEntities []Entity `json:"extractedEntities"`
	Response          string   `json:"response"`
	ProcessingTimeMs  int64    `json:"processingTimeMs"`
}

// SentinelAnalysis es el resultado fijo que se muestra cuando la llamada remota falla.
func SentinelAnalysis() Analysis {
	return Analysis{
		DetectedIntents:   []Intent{{Label: ErrorIntentLabel, Score: 0}},
		ExtractedEntities: []Entity{},
		Response:          SentinelErrorResponse,
		ProcessingTimeMs:  0,
	}
}

func (a Analysis) IsSentinel() bool {
	return len(a.DetectedIntents) == 1 &&
		a.DetectedIntents[0].Label == ErrorIntentLabel &&
		a.DetectedIntents[0].Score == 0 &&
		len(a.ExtractedEntities) == 0 &&
		a.Response == SentinelErrorResponse
}

// TopIntent busca el score maximo sin reordenar; el modelo no garantiza orden descendente.
// Ante empate gana el primero.
func (a Analysis) TopIntent() (Intent, bool) {
	if len(a.DetectedIntents) == 0 {
		return Intent{}, false
	}
	top := a.DetectedIntents[0]
	for _, in := range a.DetectedIntents[1:] {
		if in.Score > top.Score {
			top = in
		}
	}
	return top, true
}

func (a Analysis) Clone() Analysis {
	out := a
	out.DetectedIntents = append(make([]Intent, 0, len(a.DetectedIntents)), a.DetectedIntents...)
	out.ExtractedEntities = append(make([]Entity, 0, len(a.ExtractedEntities)), a.ExtractedEntities...)
	return out
}
