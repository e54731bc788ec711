package dto

// CreateStudentRequest is the payload for POST /students.
type CreateStudentRequest struct {
	StudentID string  `json:"student_id" validate:"required,max=80"`
	Name      string  `json:"name" validate:"required,max=120"`
	Email     *string `json:"email" validate:"omitempty,email"`
	ClassName *string `json:"class_name" validate:"omitempty,max=80"`
	Major     *string `json:"major" validate:"omitempty,max=80"`
	UserID    *string `json:"user_id"`
}

// UpdateStudentRequest is the partial payload for PUT /students/:id.
type UpdateStudentRequest struct {
	StudentID *string `json:"student_id" validate:"omitempty,min=1,max=80"`
	Name      *string `json:"name" validate:"omitempty,min=1,max=120"`
	Email     *string `json:"email" validate:"omitempty,email"`
	ClassName *string `json:"class_name" validate:"omitempty,max=80"`
	Major     *string `json:"major" validate:"omitempty,max=80"`
	UserID    *string `json:"user_id"`
}

// ImportStudentRow is a single entry of POST /import-students.
type ImportStudentRow struct {
	StudentID string  `json:"student_id"`
	Name      string  `json:"name"`
	Email     *string `json:"email"`
	ClassName *string `json:"class_name"`
	Major     *string `json:"major"`
}

// ImportFailure names a rejected import row.
type ImportFailure struct {
	Row       int    `json:"row"`
	StudentID string `json:"student_id,omitempty"`
	Reason    string `json:"reason"`
}

// ImportResult summarises an import run.
type ImportResult struct {
	Imported int             `json:"imported"`
	Updated  int             `json:"updated"`
	Failed   int             `json:"failed"`
	Errors   []ImportFailure `json:"errors"`
}

// StudentExportQuery carries the filters of GET /export_students.
type StudentExportQuery struct {
	StudentID  string `form:"student_id"`
	Name       string `form:"name"`
	CourseName string `form:"course_name"`
	Format     string `form:"format"`
}
