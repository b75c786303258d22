package runtime

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"
)

// Encoding is the encoding of stdin, stdout and stderr in wire messages.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingBase64 Encoding = "base64"
)

// RunRequest asks the runtime to run a named pipeline.
type RunRequest struct {
	Pipeline string
	Stdin    []byte
}

// RunBody is the wire form of the input of a run.
type RunBody struct {
	Stdin    string   `json:"stdin,omitempty"`
	Encoding Encoding `json:"encoding,omitempty"`
}

// Decode returns the raw stdin bytes of the body.
func (b RunBody) Decode() ([]byte, error) {
	switch b.Encoding {
	case "", EncodingUTF8:
		return []byte(b.Stdin), nil
	case EncodingBase64:
		data, err := base64.StdEncoding.DecodeString(b.Stdin)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 stdin: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", b.Encoding)
	}
}

// RunResponse is the wire form of the result of a run. Output that is
// not valid UTF-8 is base64 encoded, as indicated by Encoding.
type RunResponse struct {
	Pipeline    string   `json:"pipeline"`
	Success     bool     `json:"success"`
	ExitCode    int      `json:"exit_code"`
	ReturnCodes []int    `json:"return_codes"`
	Stdout      string   `json:"stdout"`
	Stderr      string   `json:"stderr"`
	Encoding    Encoding `json:"encoding"`
	DurationMs  int64    `json:"duration_ms"`
}

// NewRunResponse converts a result into its wire form.
func NewRunResponse(pipeline string, res *Result) RunResponse {
	codes := res.ReturnCodes
	if codes == nil {
		codes = []int{}
	}

	resp := RunResponse{
		Pipeline:    pipeline,
		Success:     res.Success(),
		ExitCode:    res.ExitCode(),
		ReturnCodes: codes,
		Encoding:    EncodingUTF8,
		DurationMs:  res.Duration.Milliseconds(),
	}

	if utf8.Valid(res.Stdout) && utf8.Valid(res.Stderr) {
		resp.Stdout = string(res.Stdout)
		resp.Stderr = string(res.Stderr)
	} else {
		resp.Encoding = EncodingBase64
		resp.Stdout = base64.StdEncoding.EncodeToString(res.Stdout)
		resp.Stderr = base64.StdEncoding.EncodeToString(res.Stderr)
	}

	return resp
}
