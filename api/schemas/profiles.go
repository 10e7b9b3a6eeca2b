package schemas

// -- Profile Schemas --

// DetectionMethod selects the strategy used to locate one UI element.
type DetectionMethod string

const (
	DetectByContour  DetectionMethod = "contour"
	DetectByTemplate DetectionMethod = "template"
	DetectByText     DetectionMethod = "text"
)

// ColorRange is an inclusive HSV range used by the contour strategy.
// Components follow the OpenCV convention: H in [0,179], S and V in [0,255].
type ColorRange struct {
	Lower [3]int `json:"lower"`
	Upper [3]int `json:"upper"`
}

// ElementConfig describes how to detect one named UI element. Only the
// parameter block matching Method is consulted.
type ElementConfig struct {
	Method DetectionMethod `json:"method"`
	// Type hints at the element's shape; "button" biases the contour
	// strategy toward squarish candidates.
	Type string `json:"type,omitempty"`

	// Contour parameters.
	ColorRange *ColorRange `json:"color_range,omitempty"`
	MinArea    int         `json:"min_area,omitempty"`

	// Template parameters.
	TemplatePath string  `json:"template_path,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`

	// Text parameters.
	TargetText    string  `json:"target_text,omitempty"`
	Similarity    float64 `json:"similarity,omitempty"`
	CaseSensitive bool    `json:"case_sensitive,omitempty"`
	Preprocess    bool    `json:"preprocess,omitempty"`
}

// BrowserDescriptor tells the launcher how to reach a platform.
type BrowserDescriptor struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
	URL  string `json:"url"`
}

// UsageLimits is the per-platform quota block consumed by the scheduler.
// A zero PromptsPerDay means unlimited.
type UsageLimits struct {
	PromptsPerDay  int     `json:"prompts_per_day,omitempty"`
	CooldownPeriod float64 `json:"cooldown_period,omitempty"`
	ResetTime      string  `json:"reset_time,omitempty"`
}

// InterfaceProfile is the full declarative description of one platform:
// how to open it, how to find its controls, and any previously grounded
// positions.
type InterfaceProfile struct {
	Name     string                   `json:"name"`
	Browser  BrowserDescriptor        `json:"browser"`
	Elements map[string]ElementConfig `json:"elements"`
	Limits   UsageLimits              `json:"limits,omitempty"`
	// Positions is the cached grounding result, replaced wholesale by
	// ProfileStore.SavePositions.
	Positions PositionSet `json:"interface_positions,omitempty"`
}
