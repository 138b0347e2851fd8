package curriculum

// Topic is one node of the learning roadmap.
type Topic struct {
	ID          int      `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Color       string   `yaml:"color" json:"color,omitempty"`
	Position    Position `yaml:"position" json:"position"`
}

// Position holds the roadmap display coordinates of a topic. It has no
// influence on unlock order.
type Position struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

// Option is a single answer choice.
type Option struct {
	Text    string `yaml:"text" json:"text"`
	Correct bool   `yaml:"correct" json:"-"`
}

// Question is an immutable multiple-choice question.
type Question struct {
	Prompt  string   `yaml:"prompt" json:"prompt"`
	Options []Option `yaml:"options" json:"options"`
}

// CorrectIndex returns the index of the correct option, or -1.
func (q Question) CorrectIndex() int {
	for i, o := range q.Options {
		if o.Correct {
			return i
		}
	}
	return -1
}

// QuestionSet is the quiz attached to one bank key.
type QuestionSet struct {
	Key       string     `yaml:"key"`
	Questions []Question `yaml:"questions"`
}

// catalogFile is the on-disk layout of catalog.yaml.
type catalogFile struct {
	Topics []Topic `yaml:"topics"`
}

// bankFile is the on-disk layout of quizzes.yaml.
type bankFile struct {
	Aliases map[string]string `yaml:"aliases"`
	Quizzes []QuestionSet     `yaml:"quizzes"`
}
