package sentence

import "testing"

func TestIsEmoji(t *testing.T) {
	tests := []struct {
		r    rune
		want bool
	}{
		{'😀', true},
		{'🌍', true},
		{'🚀', true},
		{'🤖', true},
		{'🪐', true},
		{'☀', true},
		{'✨', true},
		{'❤', true},
		{'a', false},
		{'中', false},
		{'。', false},
		{'，', false},
		{'9', false},
	}
	for _, tt := range tests {
		if got := IsEmoji(tt.r); got != tt.want {
			t.Errorf("IsEmoji(%q) = %v; want %v", tt.r, got, tt.want)
		}
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello\tworld", "helloworld"},
		{"第一行\n第二行\r", "第一行第二行"},
		{"<b>加粗</b>的文本", "加粗的文本"},
		{"100%的努力 & 收获", "100的努力 收获"},
		{"多  个   空格", "多 个 空格"},
		{"  两边留白  ", "两边留白"},
		{"user@example.com", "userexample.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestContainsKaomoji(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"(^_^)", true},
		{"今天真开心(^o^)", true},
		{"*_*", true},
		{"\\o/", true},
		{":-)", true},
		{";)", true},
		{":D", true},
		{"=_", true},
		{"^_^", false},
		{"你好，世界。", false},
		{"(这里的内容超过十个字符了所以不算)", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ContainsKaomoji(tt.in); got != tt.want {
			t.Errorf("ContainsKaomoji(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestFilterKaomoji(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"哈哈(^_^)真好玩", "哈哈真好玩"},
		{"干得漂亮\\o/继续", "干得漂亮继续"},
		{"没有颜文字", "没有颜文字"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FilterKaomoji(tt.in); got != tt.want {
			t.Errorf("FilterKaomoji(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestProcessSentence(t *testing.T) {
	tests := []struct {
		in         string
		wantSpeech string
		wantMoods  int
	}{
		{"今天真开心😊", "今天真开心", 1},
		{"哈哈(^_^)好玩呀", "哈哈好玩呀", 0},
		{"<p>你好</p>😀😀", "你好", 2},
		{"好的 😊", "好的", 1},
		{"", "", 0},
	}
	for _, tt := range tests {
		speech, moods := ProcessSentence(tt.in)
		if speech != tt.wantSpeech {
			t.Errorf("ProcessSentence(%q) speech = %q; want %q", tt.in, speech, tt.wantSpeech)
		}
		if len(moods) != tt.wantMoods {
			t.Errorf("ProcessSentence(%q) moods = %v; want %d entries", tt.in, moods, tt.wantMoods)
		}
		for _, m := range moods {
			if m != MoodHappy {
				t.Errorf("ProcessSentence(%q) mood = %q; want %q", tt.in, m, MoodHappy)
			}
		}
	}
}
