package domain

// Lesson is one entry in a course's lesson list.
type Lesson struct {
	Number int    `json:"lesson_number"`
	Title  string `json:"lesson_title"`
	Link   string `json:"lesson_link,omitempty"`
}

// Course describes a course registered in the catalog.
type Course struct {
	Title      string   `json:"title"`
	Link       string   `json:"link,omitempty"`
	Instructor string   `json:"instructor,omitempty"`
	Lessons    []Lesson `json:"lessons,omitempty"`
}

// CourseMetadata is the catalog record for one course, looked up by exact
// title. A record without lessons is valid: lesson-level enrichment simply
// finds no match.
type CourseMetadata struct {
	CourseTitle string
	CourseLink  string
	Instructor  string
	Lessons     []Lesson
}

// LessonByNumber returns the lesson with the given number and whether one
// exists. Matching is exact.
func (m CourseMetadata) LessonByNumber(n int) (Lesson, bool) {
	for _, l := range m.Lessons {
		if l.Number == n {
			return l, true
		}
	}
	return Lesson{}, false
}

// CourseChunk is one searchable slice of course content. LessonNumber is
// nil for chunks that belong to the course but precede any lesson.
type CourseChunk struct {
	ID           string
	CourseTitle  string
	LessonNumber *int
	Content      string
}

// Source is a citation record surfaced to the user interface, one per
// unique (course title, lesson number) pair within a single search.
type Source struct {
	CourseTitle  string `json:"course_title"`
	CourseLink   string `json:"course_link,omitempty"`
	Instructor   string `json:"instructor,omitempty"`
	LessonNumber *int   `json:"lesson_number,omitempty"`
	LessonTitle  string `json:"lesson_title,omitempty"`
	LessonLink   string `json:"lesson_link,omitempty"`
}
