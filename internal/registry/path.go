package registry

import "strings"

// IndexPath 将 crate 名映射为稀疏索引中的分片路径。该方案与远端索引
// 的目录布局一一对应，任何偏差都会直接打错 URL：
//
//	1 字符  -> 1/<name>
//	2 字符  -> 2/<name>
//	3 字符  -> 3/<首字符>/<name>
//	>=4 字符 -> <前两位>/<三四位>/<name>
//
// 索引目录全小写，名字先做小写归一。
func IndexPath(name string) string {
	n := strings.ToLower(name)
	switch len(n) {
	case 0:
		return ""
	case 1:
		return "1/" + n
	case 2:
		return "2/" + n
	case 3:
		return "3/" + n[:1] + "/" + n
	default:
		return n[:2] + "/" + n[2:4] + "/" + n
	}
}
