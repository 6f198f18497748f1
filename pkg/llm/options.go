package llm

// Options contains model inference parameters.
type Options struct {
	// Sampling parameters
	Temperature *float64 `json:"temperature,omitempty"` // Creativity (0.0-2.0)
	TopP        *float64 `json:"top_p,omitempty"`       // Nucleus sampling threshold
	TopK        *int     `json:"top_k,omitempty"`       // Top-k sampling
	Seed        *int     `json:"seed,omitempty"`        // Random seed for reproducibility

	// Length parameters
	NumPredict *int `json:"num_predict,omitempty"` // Max tokens to generate
	NumCtx     *int `json:"num_ctx,omitempty"`     // Context window size

	// Repetition control
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty"`
	RepeatLastN   *int     `json:"repeat_last_n,omitempty"`

	// Stop sequences
	Stop []string `json:"stop,omitempty"`
}

// Map flattens the set options into the loosely typed form the backend
// accepts. Unset options are omitted so the model's defaults apply.
func (o *Options) Map() map[string]any {
	if o == nil {
		return nil
	}

	m := make(map[string]any)
	if o.Temperature != nil {
		m["temperature"] = *o.Temperature
	}
	if o.TopP != nil {
		m["top_p"] = *o.TopP
	}
	if o.TopK != nil {
		m["top_k"] = *o.TopK
	}
	if o.Seed != nil {
		m["seed"] = *o.Seed
	}
	if o.NumPredict != nil {
		m["num_predict"] = *o.NumPredict
	}
	if o.NumCtx != nil {
		m["num_ctx"] = *o.NumCtx
	}
	if o.RepeatPenalty != nil {
		m["repeat_penalty"] = *o.RepeatPenalty
	}
	if o.RepeatLastN != nil {
		m["repeat_last_n"] = *o.RepeatLastN
	}
	if len(o.Stop) > 0 {
		m["stop"] = o.Stop
	}

	if len(m) == 0 {
		return nil
	}
	return m
}
