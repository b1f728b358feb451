package service

// NoticeLevel — уровень уведомления.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice — короткое сообщение о результате операции для всплывающего уведомления.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Title   string      `json:"title"`
	Message string      `json:"message"`
}

func success(title, message string) Notice {
	return Notice{Level: NoticeSuccess, Title: title, Message: message}
}

func info(title, message string) Notice {
	return Notice{Level: NoticeInfo, Title: title, Message: message}
}

func warning(title, message string) Notice {
	return Notice{Level: NoticeWarning, Title: title, Message: message}
}
