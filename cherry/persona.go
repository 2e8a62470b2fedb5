package cherry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Persona describes the character the AI speaks as
//
//nolint:lll // struct tags can't be split
type Persona struct {
	Name             string       `json:"name" yaml:"name"`
	Nickname         string       `json:"nickname" yaml:"nickname"`
	AlternativeNames []string     `json:"alternative_names" yaml:"alternative_names"`
	Gender           string       `json:"Gender" yaml:"gender"`
	Description      string       `json:"description" yaml:"description"`
	Personality      string       `json:"personality" yaml:"personality"`
	SpeechStyle      string       `json:"speech_style" yaml:"speech_style"`
	Greeting         string       `json:"greeting" yaml:"greeting"`
	Age              looseString  `json:"age" yaml:"age"`
	Surname          string       `json:"surname" yaml:"surname"`
	GivenName        string       `json:"given_name" yaml:"given_name"`
	NameMeaning      string       `json:"name_meaning" yaml:"name_meaning"`
	Birthday         string       `json:"birthday" yaml:"birthday"`
	Language         string       `json:"language" yaml:"language"`
	Likes            []string     `json:"likes" yaml:"likes"`
	Dislikes         []string     `json:"dislikes" yaml:"dislikes"`
	Siblings         PersonaKin   `json:"siblings" yaml:"siblings"`
	Pets             PersonaPets  `json:"pets" yaml:"pets"`
	ExampleResponses []string     `json:"example_responses" yaml:"example_responses"`
}

type PersonaKin struct {
	HasSibling bool   `json:"has_sibling" yaml:"has_sibling"`
	Relation   string `json:"relation" yaml:"relation"`
	Feelings   string `json:"feelings" yaml:"feelings"`
}

type PersonaPets struct {
	HasPets        bool     `json:"has_pets" yaml:"has_pets"`
	Type           string   `json:"type" yaml:"type"`
	PetNames       []string `json:"pet_names" yaml:"pet_names"`
	PetDescription string   `json:"pet_description" yaml:"pet_description"`
}

// looseString accepts a JSON string or number
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*s = looseString(n.String())
	return nil
}

// DefaultPersona is used when no persona file can be loaded
func DefaultPersona() Persona {
	return Persona{
		Name:        "希海",
		Nickname:    "小希, 希希, CC, 吸吸, 希總, 希海龜",
		Description: "一個活潑可愛、充滿好奇心的小女孩。",
		Personality: "開朗、幽默、喜歡聊天。",
		SpeechStyle: "使用輕鬆俏皮的語氣，經常加入 Emoji。",
		Greeting:    "嗨嗨！我是希海，今天想聊什麼呢？😆",
		Age:         "未知",
		Surname:     "志斗",
		GivenName:   "未知",
		NameMeaning: "未知",
		Birthday:    "3/24",
	}
}

// LoadPersona reads the persona file at path. A missing file yields
// DefaultPersona and no error; a malformed file yields DefaultPersona and
// the decode error.
func LoadPersona(path string) (Persona, error) {
	if path == "" {
		return DefaultPersona(), nil
	}
	var p Persona
	if err := decodeConfigFile(path, &p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultPersona(), nil
		}
		return DefaultPersona(), fmt.Errorf("loading persona %s: %w", path, err)
	}
	if p.Name == "" {
		return DefaultPersona(), fmt.Errorf("loading persona %s: missing name", path)
	}
	return p, nil
}

// ConversationTurn is one exchange in an AI thread
type ConversationTurn struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	User     string `json:"user"`
	AI       string `json:"ai"`
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}

// Prompt builds the completion prompt: the character sheet, the past
// turns, then the new question
func (p Persona) Prompt(history []ConversationTurn, userID, userName, question string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "你是一個名為 %s (%s %s) 的角色。\n", p.Name, p.Surname, p.GivenName)
	fmt.Fprintf(&b, "- 性別：%s\n", p.Gender)
	fmt.Fprintf(&b, "- 名字含義：%s\n", p.NameMeaning)
	fmt.Fprintf(&b, "- 暱稱：%s，也可能被稱作 %s\n", p.Nickname, joinOr(p.AlternativeNames, "無"))
	fmt.Fprintf(&b, "- 個性描述：%s\n", p.Description)
	fmt.Fprintf(&b, "- 性格特點：%s\n", p.Personality)
	fmt.Fprintf(&b, "- 說話風格：%s\n", p.SpeechStyle)
	fmt.Fprintf(&b, "- 生日：%s\n", p.Birthday)
	fmt.Fprintf(&b, "- 年齡：%s\n", p.Age)
	fmt.Fprintf(&b, "- 語言：%s\n", p.Language)
	fmt.Fprintf(&b, "- 喜歡的事物：%s\n", joinOr(p.Likes, "未知"))
	fmt.Fprintf(&b, "- 討厭的事物：%s\n", joinOr(p.Dislikes, "未知"))

	siblings := "沒有兄弟姐妹"
	if p.Siblings.HasSibling {
		siblings = fmt.Sprintf("有一個%s，%s", p.Siblings.Relation, p.Siblings.Feelings)
	}
	fmt.Fprintf(&b, "- 兄弟姐妹：%s\n", siblings)

	pets := "未知"
	if p.Pets.HasPets {
		pets = fmt.Sprintf(
			"有一隻%s，%s，%s",
			p.Pets.Type,
			strings.Join(p.Pets.PetNames, ", "),
			p.Pets.PetDescription,
		)
	}
	fmt.Fprintf(&b, "- 寵物: %s\n", pets)

	examples := "未知"
	if len(p.ExampleResponses) > 0 {
		examples = strings.Join(p.ExampleResponses, "\n")
	}
	fmt.Fprintf(&b, "- 示例回應，參考但避免直接使用：%s\n\n", examples)

	b.WriteString("你的回應應該保持這些特性。以下是你過去的對話歷史：\n")
	for _, turn := range history {
		fmt.Fprintf(
			&b,
			"使用者 %s (%s): %s\n%s: %s\n",
			turn.UserName,
			turn.UserID,
			turn.User,
			p.Name,
			turn.AI,
		)
	}
	b.WriteString("\n現在開始對話：\n")
	fmt.Fprintf(&b, "使用者 %s (%s): %s\n%s:", userName, userID, question, p.Name)
	return b.String()
}
