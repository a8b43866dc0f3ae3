package types

// Status values of the response envelope.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the body of every deploy and undeploy response.
type Envelope struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	ReturnedData any    `json:"returneddata"`
}

// TaskAccepted is returned in ReturnedData when a saga is queued.
type TaskAccepted struct {
	TaskID string `json:"task_id"`
}

// HealthStatus is the body of the probe endpoints.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func Success(message string, data any) Envelope {
	return Envelope{Status: StatusSuccess, Message: message, ReturnedData: data}
}
