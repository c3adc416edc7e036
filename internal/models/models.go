package models

import "time"

// File types stored on a CV record
const (
	FileTypePDF  = "pdf"
	FileTypeDOCX = "docx"
)

// Extraction statuses
const (
	ExtractionOK     = "ok"
	ExtractionEmpty  = "empty"
	ExtractionFailed = "failed"
)

// UnknownCandidate is the name used when no name could be inferred
const UnknownCandidate = "Unknown Candidate"

// UnknownSender is the sender address used when a message has no From header
const UnknownSender = "unknown@example.com"

// RawAttachment is a resume-like attachment pulled from a mailbox during a harvest
type RawAttachment struct {
	MessageID string
	Filename  string
	MimeType  string
	Data      []byte
}

// ExtractedDocument is the plain text produced from a PDF or DOCX file
type ExtractedDocument struct {
	Text   string `json:"text"`
	Format string `json:"format"` // pdf or docx
	Status string `json:"status"` // ok, empty or failed
	Reason string `json:"reason,omitempty"`
}

// CandidateIdentity is the inferred name and email of an applicant
type CandidateIdentity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CVRecord is a stored resume with its provenance
type CVRecord struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	CandidateName  string    `json:"candidateName"`
	CandidateEmail string    `json:"candidateEmail"`
	FileName       string    `json:"fileName"`
	FileType       string    `json:"fileType"`
	ExtractedText  string    `json:"extractedText"`
	FileData       []byte    `json:"-"`
	DateReceived   time.Time `json:"dateReceived"`
	Source         string    `json:"source"`
}

// AnalysisRecord is one scoring run of a CV against a job description
type AnalysisRecord struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	CVID           string    `json:"cvId"`
	JobDescription string    `json:"jobDescription"`
	Score          int       `json:"score"`
	Strengths      []string  `json:"strengths"`
	Weaknesses     []string  `json:"weaknesses"`
	AnalyzedAt     time.Time `json:"analyzedAt"`
}

// Assessment is the validated output of the scoring model
type Assessment struct {
	Score      int      `json:"score"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// FetchHistory records one harvest run
type FetchHistory struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Source    string    `json:"source"`
	CVsCount  int       `json:"cvsCount"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// CVWithAnalysis pairs a CV with its most recent analysis, if any
type CVWithAnalysis struct {
	CVRecord
	Analysis *AnalysisRecord `json:"analysis,omitempty"`
}

// DashboardStats summarises a user's CVs and analyses
type DashboardStats struct {
	TotalCVs         int        `json:"totalCVs"`
	LastAnalysisDate *time.Time `json:"lastAnalysisDate"`
	HighestScore     *int       `json:"highestScore"`
	AverageScore     *int       `json:"averageScore"`
}

// MessagePart is one node of an email's MIME part tree
type MessagePart struct {
	PartID       string        `json:"partId"`
	Filename     string        `json:"filename"`
	MimeType     string        `json:"mimeType"`
	AttachmentID string        `json:"attachmentId"`
	Parts        []MessagePart `json:"parts,omitempty"`
}

// MailMessage is a fetched email with headers and its part tree
type MailMessage struct {
	ID       string            `json:"id"`
	Headers  map[string]string `json:"headers"` // keys are lower-case
	Payload  MessagePart       `json:"payload"`
	Received time.Time         `json:"received"`
}

// FetchRequest represents the request payload for a mailbox harvest
type FetchRequest struct {
	Provider string   `json:"provider"`
	DaysBack int      `json:"daysBack"`
	Keywords []string `json:"keywords"`
}

// AnalyzeRequest represents the request payload for scoring all CVs
type AnalyzeRequest struct {
	JobDescription string `json:"jobDescription"`
}

// BatchResponse reports the outcome of a batch operation
type BatchResponse struct {
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// ProviderStatus describes whether a mailbox provider is connected for a user
type ProviderStatus struct {
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	LastFetch *time.Time `json:"lastFetch,omitempty"`
	AuthURL   string     `json:"authUrl,omitempty"`
}
