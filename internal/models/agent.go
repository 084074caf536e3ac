package models

// Agent is an AI persona. CreatorID null means a system agent visible to
// everyone; otherwise the agent belongs to the creating user.
type Agent struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Specialty         string `json:"specialty"`
	SystemInstruction string `json:"system_instruction"`
	CreatorID         *int64 `json:"creator_id,omitempty"`
}
