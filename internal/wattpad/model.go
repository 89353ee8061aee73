package wattpad

// storyFields 查询故事时请求的字段
const storyFields = "id,title,description,url,cover,isPaywalled,user(name,username,avatar),lastPublishedPart,parts(id,title,text_url),tags"

// partFields 通过章节ID查询时请求的字段
const partFields = "text_url,group(id,title,description,isPaywalled,url,cover,user(name,username,avatar),lastPublishedPart,parts(id,title,text_url),tags)"

// Story Wattpad故事元数据
type Story struct {
	ID                string   `json:"id"`                // 故事ID
	Title             string   `json:"title"`             // 标题
	Description       string   `json:"description"`       // 简介
	URL               string   `json:"url"`               // 故事页面地址
	Cover             string   `json:"cover"`             // 封面图地址
	IsPaywalled       bool     `json:"isPaywalled"`       // 是否付费内容
	User              User     `json:"user"`              // 作者信息
	LastPublishedPart *PartRef `json:"lastPublishedPart"` // 最近发布的章节
	Parts             []Part   `json:"parts"`             // 章节列表
	Tags              []string `json:"tags"`              // 标签
}

// User 故事作者信息
type User struct {
	Name     string `json:"name"`     // 显示名
	Username string `json:"username"` // 用户名
	Avatar   string `json:"avatar"`   // 头像地址
}

// Part 故事章节
type Part struct {
	ID      int64   `json:"id"`       // 章节ID
	Title   string  `json:"title"`    // 章节标题
	TextURL TextURL `json:"text_url"` // 章节正文地址
}

// PartRef 章节引用，只带发布时间
type PartRef struct {
	CreateDate string `json:"createDate"` // 发布时间
}

// TextURL 章节正文的下载地址
type TextURL struct {
	Text string `json:"text"` // 正文HTML地址
}

// partEnvelope v4章节接口的响应外层
// 故事数据在group字段中
type partEnvelope struct {
	TextURL TextURL `json:"text_url"`
	Group   *Story  `json:"group"`
}

// PartText 抓取后的章节正文
type PartText struct {
	PartID int64  // 章节ID
	Title  string // 章节标题
	Text   string // 纯文本正文
}
