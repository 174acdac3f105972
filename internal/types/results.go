package types

// Result shapes returned across the provider boundary. Every operation
// returns one of these, success or failure; nothing is thrown across the
// boundary. On failure, ErrorKind and Message are set and Suggestions
// carries at least one actionable next step.

// SymbolInfo is the wire-facing view of a resolved symbol.
type SymbolInfo struct {
	Name               string     `json:"name"`
	QualifiedName      string     `json:"qualified_name"`
	Kind               SymbolKind `json:"kind"`
	DefinitionLocation string     `json:"definition_location"`
	Scope              string     `json:"scope"`
	Docstring          string     `json:"docstring,omitempty"`
}

// ElementInfo is the wire-facing view of an anonymous element.
type ElementInfo struct {
	ID       string      `json:"id"`
	Kind     ElementKind `json:"kind"`
	Code     string      `json:"code"`
	Location string      `json:"location"`
}

// AnalysisResult reports symbol analysis: the resolved symbol, files
// containing references, and refactoring suggestions.
type AnalysisResult struct {
	Success        bool        `json:"success"`
	Symbol         *SymbolInfo `json:"symbol,omitempty"`
	References     []string    `json:"references,omitempty"`
	ReferenceCount int         `json:"reference_count"`
	Suggestions    []string    `json:"suggestions,omitempty"`
	ErrorKind      string      `json:"error_kind,omitempty"`
	Message        string      `json:"message,omitempty"`
}

// FindResult reports pattern search. Matches is capped by configuration
// while TotalCount reports the unbounded count; Partial marks a scan that
// hit its file or time bound before completing.
type FindResult struct {
	Success     bool         `json:"success"`
	Pattern     string       `json:"pattern,omitempty"`
	Matches     []SymbolInfo `json:"matches,omitempty"`
	TotalCount  int          `json:"total_count"`
	Partial     bool         `json:"partial,omitempty"`
	Suggestions []string     `json:"suggestions,omitempty"`
	ErrorKind   string       `json:"error_kind,omitempty"`
	Message     string       `json:"message,omitempty"`
}

// ShowResult lists the extractable anonymous elements of one function.
type ShowResult struct {
	Success      bool          `json:"success"`
	FunctionName string        `json:"function_name,omitempty"`
	Elements     []ElementInfo `json:"elements,omitempty"`
	Suggestions  []string      `json:"suggestions,omitempty"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	Message      string        `json:"message,omitempty"`
}

// RenameResult reports a rename operation. On conflict, Conflicts is
// populated, FilesModified is empty and no backup id is present.
type RenameResult struct {
	Success           bool     `json:"success"`
	OldName           string   `json:"old_name,omitempty"`
	NewName           string   `json:"new_name,omitempty"`
	QualifiedName     string   `json:"qualified_name,omitempty"`
	FilesModified     []string `json:"files_modified,omitempty"`
	ReferencesUpdated int      `json:"references_updated"`
	Conflicts         []string `json:"conflicts,omitempty"`
	BackupID          string   `json:"backup_id,omitempty"`
	Suggestions       []string `json:"suggestions,omitempty"`
	ErrorKind         string   `json:"error_kind,omitempty"`
	Message           string   `json:"message,omitempty"`
}

// ExtractResult reports an extract operation: the new definition's code,
// its parameter list (the captured free variables), and the touched files.
type ExtractResult struct {
	Success       bool     `json:"success"`
	Source        string   `json:"source,omitempty"`
	NewName       string   `json:"new_name,omitempty"`
	ExtractedCode string   `json:"extracted_code,omitempty"`
	Parameters    []string `json:"parameters,omitempty"`
	FilesModified []string `json:"files_modified,omitempty"`
	BackupID      string   `json:"backup_id,omitempty"`
	Suggestions   []string `json:"suggestions,omitempty"`
	ErrorKind     string   `json:"error_kind,omitempty"`
	Message       string   `json:"message,omitempty"`
}

// BackupInfo is the wire-facing view of a stored backup.
type BackupInfo struct {
	ID        string   `json:"id"`
	CreatedAt string   `json:"created_at"`
	Files     []string `json:"files"`
}
