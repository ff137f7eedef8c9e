package hdf5

// JoinAttrPath names an attribute as objectPath@attrName.
func JoinAttrPath(objectPath, attrName string) string {
	if objectPath == "/" {
		return "/@" + attrName
	}
	return objectPath + "@" + attrName
}
