package feishu

// apiResponse is the common envelope of the destination API. A non-zero
// Code means application-level failure regardless of HTTP status.
type apiResponse struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data respPayload `json:"data"`
}

type respPayload struct {
	Total     int         `json:"total"`
	Record    *recordData `json:"record"`
	FileToken string      `json:"file_token"`
	UploadID  string      `json:"upload_id"`
	BlockSize int64       `json:"block_size"`
	BlockNum  int         `json:"block_num"`
}

type recordData struct {
	RecordID string                 `json:"record_id"`
	Fields   map[string]interface{} `json:"fields"`
}

type searchRequest struct {
	Filter searchFilter `json:"filter"`
}

type searchFilter struct {
	Conjunction string            `json:"conjunction"`
	Conditions  []searchCondition `json:"conditions"`
}

type searchCondition struct {
	FieldName string   `json:"field_name"`
	Operator  string   `json:"operator"`
	Value     []string `json:"value"`
}

type recordRequest struct {
	Fields map[string]interface{} `json:"fields"`
}

type uploadPrepareRequest struct {
	FileName   string `json:"file_name"`
	ParentType string `json:"parent_type"`
	ParentNode string `json:"parent_node"`
	Size       int64  `json:"size"`
}

type uploadFinishRequest struct {
	UploadID string `json:"upload_id"`
	BlockNum int    `json:"block_num"`
}
