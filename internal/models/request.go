package models

type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type WaitlistRequest struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

type WaitlistResponse struct {
	Message  string `json:"message"`
	Position int    `json:"position"`
}

type FeedbackResponse struct {
	Message       string  `json:"message"`
	ID            int64   `json:"id,omitempty"`
	ScreenshotURL *string `json:"screenshotUrl,omitempty"`
}

type GeneratePDFRequest struct {
	Latex string `json:"latex"`
}

type DownloadPDFRequest struct {
	PDF      string `json:"pdf"`
	Filename string `json:"filename"`
}

// LetterRequest carries a generated letter and, for splicing, the edited body.
type LetterRequest struct {
	Latex string `json:"latex"`
	Body  string `json:"body"`
}

type LetterResponse struct {
	Latex string `json:"latex,omitempty"`
	Text  string `json:"text,omitempty"`
}

// LoginRequest represents the login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CallbackRequest is the PKCE code exchange sent after an OAuth redirect.
type CallbackRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
}

type SessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
}

type ConfigResponse struct {
	BaseURL         string `json:"baseUrl"`
	SupabaseURL     string `json:"supabaseUrl"`
	SupabaseAnonKey string `json:"supabaseAnonKey"`
}

type ResumeUploadResponse struct {
	Message   string `json:"message"`
	ResumeURL string `json:"resumeUrl"`
}
