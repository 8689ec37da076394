package domain

// City is one entry of the eligibility registry. Blocked cities are carved
// out for legal or regulatory reasons and never eligible.
type City struct {
	ID       string `json:"id" yaml:"id" dynamodbav:"id"`
	Name     string `json:"name" yaml:"name" dynamodbav:"name"`
	State    string `json:"state" yaml:"state" dynamodbav:"state"`
	Eligible bool   `json:"eligible" yaml:"eligible" dynamodbav:"eligible"`
	Blocked  bool   `json:"blocked,omitempty" yaml:"blocked" dynamodbav:"blocked"`
	Reason   string `json:"reason,omitempty" yaml:"reason" dynamodbav:"reason"`
}

// Admissible reports whether disputes for this city may be processed.
func (c City) Admissible() bool { return c.Eligible && !c.Blocked }
