package request

type CreateConversationRequest struct {
	Model string `json:"model"`
}

type UpdateConversationTitleRequest struct {
	Title string `json:"title" binding:"required,max=255"`
}
