package domain

import "strings"

// NormalizeAddress 去除空白与尖括号并转为小写
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}

// DomainOf 返回地址 @ 之后的部分
func DomainOf(address string) string {
	i := strings.LastIndex(address, "@")
	if i < 0 {
		return ""
	}
	return strings.ToLower(address[i+1:])
}

// LocalPartOf 返回地址 @ 之前的部分
func LocalPartOf(address string) string {
	i := strings.LastIndex(address, "@")
	if i < 0 {
		return address
	}
	return address[:i]
}

// IsValidAddress 粗略校验：恰好一个 @，两侧非空
func IsValidAddress(address string) bool {
	i := strings.LastIndex(address, "@")
	return i > 0 && i < len(address)-1 && strings.Count(address, "@") == 1
}
