package dispatcher

import "encoding/json"

// StatusRequest asks the dispatcher for the latest queue messages.
type StatusRequest struct {
	Summary      bool  `json:"summary"`
	MessageCount uint8 `json:"message_count"`
	Dequeue      bool  `json:"dequeue"`
}

func DefaultStatusRequest() StatusRequest {
	return StatusRequest{MessageCount: 32}
}

type Workflow struct {
	ErrorMessage *string `json:"errorMessage"`
}

type Metadata struct {
	Parameters json.RawMessage `json:"parameters"`
	Workflow   Workflow        `json:"workflow"`
}

// Message is a run event reported by the status endpoint.
type Message struct {
	Event    string   `json:"event"`
	RunID    string   `json:"runId"`
	RunName  string   `json:"runName"`
	UTCTime  string   `json:"utcTime"`
	Metadata Metadata `json:"metadata"`
}

type Param struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type DispatchRequest struct {
	ConfigURI      string  `json:"config_uri"`
	PipelineURI    string  `json:"pipeline_uri"`
	ParametersURI  string  `json:"parameters_uri"`
	ParametersJSON []Param `json:"parameters_json"`
	AutoDelete     bool    `json:"auto_delete"`
}

type DispatchResponse struct {
	SubscriptionID    string `json:"sub_id"`
	ResourceGroup     string `json:"rg_name"`
	ContainerInstance string `json:"ci_name"`
	ContainerCommand  string `json:"ci_cmd"`
	ProvisioningState string `json:"provisioning_state"`
}
