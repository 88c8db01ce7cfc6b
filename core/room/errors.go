package room

import "errors"

// 领域错误。均为同步的本地错误，在违反前置条件处抛出，核心不做重试；
// HTTP/WS 层负责映射为状态码。
var (
	ErrRoomNotFound    = errors.New("房间不存在")
	ErrMemberNotFound  = errors.New("未加入房间")
	ErrUnauthorized    = errors.New("无权限")
	ErrBlacklisted     = errors.New("你已被拉黑")
	ErrDuplicateSong   = errors.New("队列中已存在该歌曲")
	ErrQuotaExceeded   = errors.New("已达到个人点歌上限")
	ErrInvalidPassword = errors.New("密码错误")
)
