package xerr

import "fmt"

// CodeError 自定义错误结构
type CodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error 实现 error 接口
func (e *CodeError) Error() string {
	return fmt.Sprintf("Code: %d, Message: %s", e.Code, e.Message)
}

// New 创建新的 CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Message: msg}
}

// Wrap 把底层错误包装为 CodeError；若已是 CodeError 则原样返回
func Wrap(code int, err error) *CodeError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*CodeError); ok {
		return ce
	}
	return &CodeError{Code: code, Message: err.Error()}
}

// Is 判断 err 是否为指定错误码的 CodeError
func Is(err error, code int) bool {
	ce, ok := err.(*CodeError)
	return ok && ce.Code == code
}

// 常用通用错误码
const (
	OK                  = 200
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	Conflict            = 409
	InternalServerError = 500
	BadGateway          = 502
)

// 常用预定义错误
var (
	ErrSuccess     = New(OK, "Success")
	ErrServerError = New(InternalServerError, "系统错误，请联系工作人员")
	ErrParam       = New(BadRequest, "参数错误")

	// 数据集索引与检索相关
	ErrDatasetNotFound  = New(NotFound, "数据集不存在")
	ErrDocumentNotFound = New(NotFound, "文档不存在")
	ErrSegmentNotFound  = New(NotFound, "分段不存在")
	ErrDatasetBusy      = New(Conflict, "数据集正在重建索引，请稍后再试")
	ErrDocArchived      = New(Forbidden, "文档已归档，禁止变更")
)
