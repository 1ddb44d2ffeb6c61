package workflow

import "encoding/json"

// Serialize renders wf as JSON. Workflow definitions are plain data;
// encoding/json round-trips every exported field without a bespoke
// codec (no third-party serialization library in the example pack
// targets this kind of DTO — gojsonschema validates incoming documents,
// it does not serialize outgoing ones).
func Serialize(wf *Workflow) ([]byte, error) {
	return json.Marshal(wf)
}

// Deserialize parses JSON produced by Serialize back into a Workflow.
func Deserialize(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}
