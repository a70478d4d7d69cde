package dialogue

import "testing"

func TestIsExitIntent(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"拜拜", true},
		{"再见", true},
		{"那我们下次再见吧", true},
		{"我要走了", true},
		{"结束对话", true},
		{"告辞", true},
		{"我先下线了", true},
		{"goodbye", true},
		{"bye bye", true},
		{"see you", true},
		{"退出", true},

		// Negations and questions about leaving stay in the session.
		{"不要退出", false},
		{"别走", false},
		{"为什么要退出", false},
		{"怎么退出这个程序", false},
		{"你会离开我吗", false},
		{"don't leave me", false},

		// Keywords buried in long requests are not goodbyes.
		{"帮我写一个故事，故事的结尾主角说了结束", false},

		// Short utterances get the keyword scan.
		{"好了结束", true},
		{"嗯，下线", true},

		{"", false},
		{"   ", false},
		{"今天天气怎么样", false},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			if got := IsExitIntent(tc.text); got != tc.want {
				t.Errorf("IsExitIntent(%q) = %v; want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestGoodbyeReplyNonEmpty(t *testing.T) {
	for i := 0; i < 10; i++ {
		if GoodbyeReply() == "" {
			t.Fatal("empty goodbye reply")
		}
	}
}
