package models

import "github.com/google/uuid"

type VocabularyWord struct {
	ID              uuid.UUID `json:"id"`
	Word            string    `json:"word"`
	PartOfSpeech    string    `json:"pos"`
	DefinitionKo    string    `json:"definition_ko"`
	DefinitionEn    string    `json:"definition_en"`
	ExampleSentence string    `json:"example_sentence"`
	Pronunciation   *string   `json:"pronunciation"`
	Level           string    `json:"-"`
}

// TargetWord is the short form of a word shown alongside a study session.
type TargetWord struct {
	ID           uuid.UUID `json:"id"`
	Word         string    `json:"word"`
	DefinitionKo string    `json:"definition_ko"`
}

func (w VocabularyWord) Target() TargetWord {
	return TargetWord{ID: w.ID, Word: w.Word, DefinitionKo: w.DefinitionKo}
}

// WordNames returns the surface forms of words in order.
func WordNames(words []VocabularyWord) []string {
	names := make([]string, len(words))
	for i, w := range words {
		names[i] = w.Word
	}
	return names
}

func TargetWords(words []VocabularyWord) []TargetWord {
	out := make([]TargetWord, len(words))
	for i, w := range words {
		out[i] = w.Target()
	}
	return out
}

type RandomWordsResponse struct {
	Words []VocabularyWord `json:"words"`
}

// WordBrief is the compact word shape used in study history.
type WordBrief struct {
	ID           uuid.UUID `json:"id"`
	Word         string    `json:"word"`
	PartOfSpeech string    `json:"pos"`
	DefinitionKo string    `json:"definition_ko"`
}
