package models

import "encoding/json"

type LevelTestQuestion struct {
	ID              string          `json:"id"`
	QuestionType    string          `json:"question_type"`
	QuestionText    string          `json:"question_text"`
	Options         json.RawMessage `json:"options"`
	CorrectAnswer   string          `json:"-"`
	Level           string          `json:"level"`
	DifficultyScore int             `json:"-"`
	Order           int             `json:"order"`
}

type LevelTestAnswer struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

type LevelTestSubmitRequest struct {
	Answers []LevelTestAnswer `json:"answers"`
}

type LevelTestQuestionsResponse struct {
	Questions  []LevelTestQuestion `json:"questions"`
	TotalCount int                 `json:"total_count"`
}

type LevelTestResult struct {
	Score         int            `json:"score"`
	Total         int            `json:"total"`
	LevelScores   map[string]int `json:"level_scores"`
	AssignedLevel string         `json:"assigned_level"`
	Message       string         `json:"message"`
}
