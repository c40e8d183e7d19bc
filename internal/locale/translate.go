package locale

import "fmt"

// Message keys.
const (
	MsgXHROnly           = "xhr_only"
	MsgDone              = "done"
	MsgPksMissing        = "pks_missing"
	MsgPksInvalid        = "pks_invalid"
	MsgPksNotInteger     = "pks_not_integer"
	MsgCropMissing       = "crop_missing"
	MsgCropUnreadable    = "crop_unreadable"
	MsgCropFormat        = "crop_format"
	MsgFileMissing       = "file_missing"
	MsgImageDeleted      = "image_deleted"
	MsgImageNotFound     = "image_not_found"
	MsgInvalidImage      = "invalid_image"
	MsgNoFile            = "no_file"
	MsgFileTooLarge      = "file_too_large"
	MsgInvalidID         = "invalid_id"
	MsgGalleryRequired   = "gallery_required"
	MsgGalleryInvalid    = "gallery_invalid"
	MsgGalleryMax        = "gallery_max_number_of_images"
	MsgAlbumNotFound     = "album_not_found"
	MsgAlbumTitleMissing = "album_title_missing"
	MsgAlbumTitleTooLong = "album_title_too_long"
	MsgAlbumSaved        = "album_saved"
	MsgAlbumDeleted      = "album_deleted"
	MsgServerError       = "server_error"
)

type entry struct {
	en string
	zh string
}

var catalog = map[string]entry{
	MsgXHROnly:           {"Only XMLHttpRequest requests are allowed", "仅允许 XMLHttpRequest 请求"},
	MsgDone:              {"Done", "完成"},
	MsgPksMissing:        {"The request doesn't contain pks data", "请求中缺少 pks 数据"},
	MsgPksInvalid:        {"Invalid format of pks %s: %s", "pks 格式无效 %s：%s"},
	MsgPksNotInteger:     {"pks should only contain integers, while got %s", "pks 只能包含整数，实际收到 %s"},
	MsgCropMissing:       {"The request doesn't contain cropped_result", "请求中缺少 cropped_result"},
	MsgCropUnreadable:    {"Error while getting cropped_result: %s", "读取 cropped_result 出错：%s"},
	MsgCropFormat:        {"Wrong format of crop_result data.", "crop_result 数据格式错误。"},
	MsgFileMissing:       {"File not found, please re-upload the image", "文件不存在，请重新上传图片"},
	MsgImageDeleted:      {"The image was unexpectedly deleted from server", "图片已从服务器中被意外删除"},
	MsgImageNotFound:     {"Image not found", "图片不存在"},
	MsgInvalidImage:      {"Upload a valid image. The file you uploaded was either not an image or a corrupted image.", "请上传有效的图片。您上传的文件不是图片或已损坏。"},
	MsgNoFile:            {"No file was submitted.", "未提交任何文件。"},
	MsgFileTooLarge:      {"The uploaded file is too large.", "上传的文件过大。"},
	MsgInvalidID:         {"Invalid id", "无效的 ID"},
	MsgGalleryRequired:   {"The submitted file is empty.", "提交的文件为空。"},
	MsgGalleryInvalid:    {"The submitted images are invalid.", "提交的图片无效。"},
	MsgGalleryMax:        {"Number of images exceeded, only %d allowed", "图片数量超出限制，最多允许 %d 张"},
	MsgAlbumNotFound:     {"Album not found", "相册不存在"},
	MsgAlbumTitleMissing: {"Please enter an album title", "请输入相册标题"},
	MsgAlbumTitleTooLong: {"The album title is too long", "相册标题过长"},
	MsgAlbumSaved:        {"Album saved", "相册已保存"},
	MsgAlbumDeleted:      {"Album deleted", "相册已删除"},
	MsgServerError:       {"Internal server error", "服务器内部错误"},
}

// Pick returns the text matching the request language, defaulting to English.
func Pick(language, english, chinese string) string {
	if NormalizeLanguage(language) == LanguageChinese {
		if chinese != "" {
			return chinese
		}
		return english
	}
	if english != "" {
		return english
	}
	return chinese
}

// T formats the message key in language. Unknown keys are returned unchanged.
func T(language, key string, args ...any) string {
	e, ok := catalog[key]
	if !ok {
		return key
	}
	text := Pick(language, e.en, e.zh)
	if len(args) > 0 {
		return fmt.Sprintf(text, args...)
	}
	return text
}
