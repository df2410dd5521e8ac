package mirror

import "fmt"

func eventMessage(kind Kind, key string) string {
	switch kind {
	case KindCreate:
		return fmt.Sprintf("FSWatcher: New file in watch directory - (%s) :file_folder:", key)
	case KindUpdate:
		return fmt.Sprintf("FSWatcher: File modified in watch directory - (%s) :file_folder:", key)
	case KindMove:
		return fmt.Sprintf("FSWatcher: File moved in watch directory - (%s) :file_folder:", key)
	case KindDelete:
		return fmt.Sprintf("FSWatcher: File deleted from watch directory - (%s) :file_folder:", key)
	default:
		return fmt.Sprintf("FSWatcher: Unknown file event in watch directory - (%s) :file_folder:", key)
	}
}

func uploadedMessage(bucket, key string) string {
	return fmt.Sprintf("FSWatcher: File successfully uploaded to %s - (%s) :file_folder:", bucket, key)
}

func failedMessage(kind Kind, bucket, key string) string {
	if kind == KindDelete {
		return fmt.Sprintf("FSWatcher: Error deleting file from %s - (%s) :file_folder:", bucket, key)
	}
	return fmt.Sprintf("FSWatcher: Error uploading file to %s - (%s) :file_folder:", bucket, key)
}
