package domain

import "strings"

// rfiFailurePrefix marks an RFI body that is the service's own error report
// rather than a drafted request.
const rfiFailurePrefix = "RFI Generation Error:"

// RFIRequest asks the design service to draft a Request for Information about
// an issue with a connection.
type RFIRequest struct {
	ConnectionData *Connection `json:"connection_data"`
	Issue          string      `json:"issue"`
}

// RFIDraft is an AI-drafted RFI. It is advisory text for an engineer to edit.
type RFIDraft struct {
	RFI        string `json:"rfi"`
	Disclaimer string `json:"disclaimer,omitempty"`
}

// Failed reports whether the service returned an error report in place of a draft.
func (d *RFIDraft) Failed() bool {
	return strings.HasPrefix(strings.TrimSpace(d.RFI), rfiFailurePrefix)
}
