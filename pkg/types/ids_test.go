package types

import "testing"

func TestGenerateID(t *testing.T) {
	a := GenerateID()
	b := GenerateID()

	if a == "" || b == "" {
		t.Fatal("生成的标识不应为空")
	}
	if a == b {
		t.Errorf("两次生成的标识相同: %q", a)
	}
}

func TestShortID(t *testing.T) {
	short := ShortID("node-alpha")

	if short == "" {
		t.Fatal("非空标识的简短表示不应为空")
	}
	// 8 字节 Base58 编码最长 11 个字符
	if len(short) > 11 {
		t.Errorf("简短表示过长: %q", short)
	}

	// 同一标识的简短表示稳定
	if again := ShortID("node-alpha"); again != short {
		t.Errorf("简短表示不稳定: %q != %q", again, short)
	}

	// 不同标识几乎必然不同
	if other := ShortID("node-beta"); other == short {
		t.Errorf("不同标识得到相同简短表示: %q", short)
	}
}

func TestShortIDEmpty(t *testing.T) {
	if got := ShortID(""); got != "" {
		t.Errorf("空标识应返回空串，得到 %q", got)
	}
}
