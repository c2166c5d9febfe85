package service

import "errors"

var (
	// ErrForbidden 资源不属于当前用户
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidAddress 地址格式错误
	ErrInvalidAddress = errors.New("invalid email address")
	// ErrNoProvisioningPath 地址既不匹配目录前缀也不属于通配域名
	ErrNoProvisioningPath = errors.New("no provisioning path for address")
	// ErrEntitlementDenied 所有者当前套餐不允许创建新别名
	ErrEntitlementDenied = errors.New("alias creation not allowed by plan")
	// ErrTokenExhausted 在最大尝试次数内未能生成唯一的回复地址
	ErrTokenExhausted = errors.New("reply token generation exhausted")
)
