// Package quiz holds the generated-quiz data model shared by the matcher
// and the HTTP layer.
package quiz

// Question types the matcher cares about. Only image-based questions
// receive crop assignments.
const (
	TypeMultipleChoice = "multiple-choice"
	TypeImage          = "image-based"
)

type Question struct {
	QuestionType  string   `json:"questionType"`
	QuestionText  string   `json:"questionText"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
	ImageURL      string   `json:"imageUrl,omitempty"`
	SourcePage    int      `json:"sourcePage,omitempty"`
}

type Quiz struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
}

// ImageQuestionCount returns how many questions are image-based.
func (q Quiz) ImageQuestionCount() int {
	n := 0
	for _, question := range q.Questions {
		if question.QuestionType == TypeImage {
			n++
		}
	}
	return n
}
