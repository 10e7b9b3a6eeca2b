package schemas

// -- Element Schemas --

// Canonical names of the UI elements a platform profile must ground before
// the platform may receive prompts.
const (
	ElementPromptField   = "prompt_field"
	ElementSubmitButton  = "submit_button"
	ElementResponseArea  = "response_area"
	ElementNewChatButton = "new_chat_button"
)

// RequiredElements lists the element names a PositionSet must contain to be
// considered complete. NewChatButton is optional.
var RequiredElements = []string{ElementPromptField, ElementSubmitButton, ElementResponseArea}

// DetectedElement is a grounded on-screen region in pixel coordinates.
// Instances are immutable once returned by the detector.
type DetectedElement struct {
	X       int `json:"x"`
	Y       int `json:"y"`
	Width   int `json:"width"`
	Height  int `json:"height"`
	CenterX int `json:"center_x"`
	CenterY int `json:"center_y"`
	// Confidence is only populated by strategies that produce a score
	// (template and text matching).
	Confidence float64 `json:"confidence,omitempty"`
}

// Area returns the pixel area of the element's bounding box.
func (e DetectedElement) Area() int {
	return e.Width * e.Height
}

// PositionSet maps element names to their grounded coordinates for one
// platform. It is replaced wholesale on re-grounding, never mutated in place.
type PositionSet map[string]DetectedElement

// Validate reports whether the set contains every required element, and the
// exact list of missing names otherwise.
func (p PositionSet) Validate() (bool, []string) {
	var missing []string
	for _, name := range RequiredElements {
		if _, ok := p[name]; !ok {
			missing = append(missing, name)
		}
	}
	return len(missing) == 0, missing
}

// Clone returns an independent copy of the set.
func (p PositionSet) Clone() PositionSet {
	if p == nil {
		return nil
	}
	out := make(PositionSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
