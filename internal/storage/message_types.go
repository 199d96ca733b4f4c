package storage

// ResumeJobMessage 队列载荷：一次简历处理任务。
// 入队后不可变，一次投递对应一次处理尝试。
type ResumeJobMessage struct {
	JobID        string `json:"job_id"`
	CandidateID  string `json:"candidate_id"`
	FileURL      string `json:"file_url"`
	FilePath     string `json:"file_path"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
}
