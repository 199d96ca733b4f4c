package types

// PersonalInfo 解析能力返回的候选人联系信息。
// 字段均为可选，空值表示解析结果中没有该信息。
type PersonalInfo struct {
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Location string   `json:"location,omitempty"`
	Links    []string `json:"links,omitempty"`
}

// Experience 一段工作经历
type Experience struct {
	Company      string   `json:"company"`
	Position     string   `json:"position"`
	StartDate    string   `json:"startDate"`
	EndDate      string   `json:"endDate,omitempty"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies"`
}

// Education 一段教育经历
type Education struct {
	Institution    string   `json:"institution"`
	Degree         string   `json:"degree"`
	Field          string   `json:"field"`
	GraduationYear *int     `json:"graduationYear,omitempty"`
	GPA            *float64 `json:"gpa,omitempty"`
}

// ParsedResume 结构化解析后的完整简历数据，
// 与解析能力返回的JSON一一对应。
type ParsedResume struct {
	PersonalInfo    *PersonalInfo `json:"personalInfo,omitempty"`
	Summary         string        `json:"summary,omitempty"`
	Skills          []string      `json:"skills"`
	Experience      []Experience  `json:"experience"`
	Education       []Education   `json:"education"`
	Certifications  []string      `json:"certifications"`
	TotalExperience float64       `json:"totalExperience"`
}

// Normalize 补齐缺省值：列表字段缺失时置为空列表，
// 工作年限缺失或非法时归零。持久化前必须调用。
func (r *ParsedResume) Normalize() {
	if r.Skills == nil {
		r.Skills = []string{}
	}
	if r.Experience == nil {
		r.Experience = []Experience{}
	}
	if r.Education == nil {
		r.Education = []Education{}
	}
	if r.Certifications == nil {
		r.Certifications = []string{}
	}
	if r.TotalExperience < 0 {
		r.TotalExperience = 0
	}
	for i := range r.Experience {
		if r.Experience[i].Technologies == nil {
			r.Experience[i].Technologies = []string{}
		}
	}
}
