package domain

// Theme is a closed vocabulary for the UI's color scheme preference.
type Theme string

const (
	ThemeSystem Theme = "system"
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
)

// ValidTheme reports whether t is one of the closed set of themes.
func ValidTheme(t Theme) bool {
	switch t {
	case ThemeSystem, ThemeLight, ThemeDark:
		return true
	}
	return false
}

// AppSettings is the singleton-shaped settings record. APIKeyMasked
// carries only the last four characters — the encrypted ciphertext
// itself never leaves the settings service.
type AppSettings struct {
	APIKeyMasked       string
	HasAPIKey          bool
	WorkdayStartMinute int
	WorkdayEndMinute   int
	Theme              Theme
	AIFeedbackOptOut   *bool
}

// Goal is a user-defined objective that tasks can be associated with.
type Goal struct {
	ID          string
	Title       string
	Description string
	TargetDate  *string // ISO date, optional
	Status      string
	CreatedAt   string
	UpdatedAt   string
}

// GoalTaskAssociation links a goal to one of the tasks contributing to it.
type GoalTaskAssociation struct {
	ID        string
	GoalID    string
	TaskID    string
	CreatedAt string
}
