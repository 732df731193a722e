package router

import "fmt"

// recoverToError 把 recover() 得到的任意值转换为 error，供 lookup 的
// 防御性 panic 捕获使用。
func recoverToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
